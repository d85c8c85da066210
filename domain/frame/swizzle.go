package frame

// SwizzleRGBA reorders RGBA pixels in place into the packed format to. Other
// formats leave pix untouched.
func SwizzleRGBA(pix []byte, to PixelFormat) {
	switch to {
	case PixelFormat32BGRA:
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	case PixelFormat32ARGB:
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+1], pix[i+2], pix[i+3] = pix[i+3], pix[i], pix[i+1], pix[i+2]
		}
	}
}
