package ffmpeg

import (
	"fmt"
	"strings"
)

// videoFilter synthesizes the -vf chain for a spec. Crop-to-fill always
// produces one chain holding both the cover-scale and the centered crop;
// otherwise an explicit crop clause precedes the scale clause.
func videoFilter(s Spec) string {
	var chain []string

	if s.Scale != nil && s.Scale.Mode == ScaleCropFill {
		w, h := s.Scale.Width, s.Scale.Height
		chain = append(chain,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", w, h),
			fmt.Sprintf("crop=%d:%d:(iw-%d)/2:(ih-%d)/2", w, h, w, h))
		return strings.Join(chain, ",")
	}

	if c := s.Crop; c != nil {
		if c.OffsetX != nil && c.OffsetY != nil {
			chain = append(chain, fmt.Sprintf("crop=%d:%d:%d:%d", c.Width, c.Height, *c.OffsetX, *c.OffsetY))
		} else {
			chain = append(chain, fmt.Sprintf("crop=%d:%d:(iw-%d)/2:(ih-%d)/2", c.Width, c.Height, c.Width, c.Height))
		}
	}

	if sc := s.Scale; sc != nil {
		switch sc.Mode {
		case ScalePad:
			chain = append(chain,
				fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", sc.Width, sc.Height),
				fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", sc.Width, sc.Height))
		case ScaleEvenDims:
			chain = append(chain, "scale=trunc(iw/2)*2:trunc(ih/2)*2")
		default:
			if sc.Height > 0 {
				chain = append(chain, fmt.Sprintf("scale=%d:%d", sc.Width, sc.Height))
			} else {
				// Half-truncated height keeps the encoder's even-dimension
				// requirement satisfied when only the width is pinned.
				chain = append(chain, fmt.Sprintf("scale=%d:trunc(ih/2)*2", sc.Width))
			}
		}
	}

	return strings.Join(chain, ",")
}

// audioFilter synthesizes the -af chain. Mute wins over a volume factor;
// the factor is clamped to [0, 1].
func audioFilter(s Spec) string {
	if s.Muted {
		return "volume=0"
	}
	if s.Volume != nil {
		return "volume=" + formatFloat(ClampVolume(*s.Volume))
	}
	return ""
}
