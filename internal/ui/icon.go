package ui

// iconBytes is a 16x16 PNG (purple square, white play triangle). PNG works
// for the tray on macOS and Linux; Windows builds should swap in an ICO.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x2d, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x88, 0xf0, 0x9a, 0xf7,
	0x9f, 0x12, 0xcc, 0x30, 0x6a, 0x00, 0x76, 0x03, 0x3e, 0x7c, 0xf8, 0x0a,
	0xc6, 0x14, 0x1b, 0x40, 0x8c, 0x41, 0x44, 0x19, 0x80, 0xcf, 0x20, 0xfa,
	0x18, 0x40, 0xff, 0x40, 0x1c, 0x4d, 0x89, 0xa4, 0x61, 0x00, 0xbe, 0x88,
	0x65, 0x17, 0xe8, 0x3b, 0x2a, 0x18, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
