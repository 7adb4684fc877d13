package spawn

func window(p []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset > len(p) || length > len(p)-offset {
		return nil, ErrInvalidRange
	}
	return p[offset : offset+length], nil
}
