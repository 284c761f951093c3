package pcd

// LZF block format as written by liblzf and read by PCL.
//
// A stream is a sequence of chunks, each introduced by a control byte c:
//   - c < 32: a literal run of c+1 bytes follows.
//   - otherwise: a back-reference. The length field is c>>5 (extended by
//     one more byte when it equals 7) and the copy is length+2 bytes long,
//     starting ((c&0x1f)<<8 | next)+1 bytes behind the output position.
const (
	lzfMaxLiteral = 1 << 5
	lzfMaxOffset  = 1 << 13
	lzfMaxMatch   = (1 << 8) + (1 << 3) // 264 bytes, length field 262
	lzfHashLog    = 14
)

func lzfHash(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - lzfHashLog)
}

// lzfCompress always produces a valid stream. Incompressible input grows by
// one control byte per 32 literals.
func lzfCompress(in []byte) []byte {
	n := len(in)
	out := make([]byte, 0, n+n/lzfMaxLiteral+1)
	if n == 0 {
		return out
	}
	table := make([]int32, 1<<lzfHashLog) // position+1, 0 means empty

	lit := 0
	out = append(out, 0) // control byte of the pending literal run
	closeLiteral := func() {
		if lit > 0 {
			out[len(out)-lit-1] = byte(lit - 1)
		} else {
			out = out[:len(out)-1]
		}
	}

	ip := 0
	for ip+2 < n {
		h := lzfHash(in[ip:])
		ref := int(table[h]) - 1
		table[h] = int32(ip + 1)

		if ref >= 0 && ip-ref-1 < lzfMaxOffset &&
			in[ref] == in[ip] && in[ref+1] == in[ip+1] && in[ref+2] == in[ip+2] {
			off := ip - ref - 1
			maxLen := n - ip
			if maxLen > lzfMaxMatch {
				maxLen = lzfMaxMatch
			}
			m := 3
			for m < maxLen && in[ref+m] == in[ip+m] {
				m++
			}

			closeLiteral()
			l := m - 2
			if l < 7 {
				out = append(out, byte(off>>8)|byte(l<<5))
			} else {
				out = append(out, byte(off>>8)|7<<5, byte(l-7))
			}
			out = append(out, byte(off))

			ip += m
			lit = 0
			out = append(out, 0)
			continue
		}

		out = append(out, in[ip])
		lit++
		ip++
		if lit == lzfMaxLiteral {
			closeLiteral()
			lit = 0
			out = append(out, 0)
		}
	}
	for ip < n {
		out = append(out, in[ip])
		lit++
		ip++
		if lit == lzfMaxLiteral {
			closeLiteral()
			lit = 0
			out = append(out, 0)
		}
	}
	closeLiteral()
	return out
}

// lzfDecompress expands in, refusing to grow past limit bytes. A stream
// that would exceed limit is reported as a size mismatch.
func lzfDecompress(in []byte, limit int) ([]byte, error) {
	out := make([]byte, 0, limit)
	ip := 0
	for ip < len(in) {
		c := int(in[ip])
		ip++
		if c < 32 {
			l := c + 1
			if ip+l > len(in) {
				return nil, corruptErrorf(CodeDecompressFailed, "literal run past end of block at %d", ip-1)
			}
			if len(out)+l > limit {
				return nil, corruptErrorf(CodeDecompressSizeMismatch, "output exceeds %d bytes", limit)
			}
			out = append(out, in[ip:ip+l]...)
			ip += l
			continue
		}

		l := c >> 5
		if l == 7 {
			if ip >= len(in) {
				return nil, corruptErrorf(CodeDecompressFailed, "truncated back-reference length")
			}
			l += int(in[ip])
			ip++
		}
		if ip >= len(in) {
			return nil, corruptErrorf(CodeDecompressFailed, "truncated back-reference offset")
		}
		ref := len(out) - (c&0x1f)<<8 - int(in[ip]) - 1
		ip++
		if ref < 0 {
			return nil, corruptErrorf(CodeDecompressFailed, "back-reference before start of output")
		}
		l += 2
		if len(out)+l > limit {
			return nil, corruptErrorf(CodeDecompressSizeMismatch, "output exceeds %d bytes", limit)
		}
		// Byte by byte: the source may overlap the bytes being written.
		for i := 0; i < l; i++ {
			out = append(out, out[ref+i])
		}
	}
	return out, nil
}
