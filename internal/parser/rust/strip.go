package rust

// StripComments blanks every comment span in src. Characters inside a
// comment become spaces and newlines are kept, so offsets and line numbers in
// the result match the input.
//
// Line comments run to the end of the line. Block comments close at the first
// "*/" and do not nest, unlike the language itself. Quote characters carry no
// meaning here.
func StripComments(src string) (string, error) {
	out, _, err := stripComments(src)
	return out, err
}

// stripComments also returns the offsets where blanked line comments start,
// in increasing order.
func stripComments(src string) (string, []int, error) {
	out := []byte(src)
	var cuts []int

	for i := 0; i < len(out); {
		if out[i] != '/' || i+1 >= len(out) {
			i++
			continue
		}

		switch out[i+1] {
		case '/':
			cuts = append(cuts, i)
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case '*':
			start := i
			out[i], out[i+1] = ' ', ' '
			i += 2
			closed := false
			for i < len(out) {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					closed = true
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
			if !closed {
				return "", nil, &SyntaxError{Err: ErrUnterminatedComment, Line: lineAt(src, start)}
			}
		default:
			i++
		}
	}

	return string(out), cuts, nil
}
