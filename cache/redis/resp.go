package redis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Error is a RESP error reply such as "ERR unknown command".
type Error string

func (e Error) Error() string { return "redis: " + string(e) }

var errMalformed = errors.New("redis: malformed reply")

// writeCommand encodes args as a RESP array of bulk strings.
func writeCommand(w *bufio.Writer, args ...string) error {
	w.WriteByte('*')
	w.WriteString(strconv.Itoa(len(args)))
	w.WriteString("\r\n")
	for _, arg := range args {
		w.WriteByte('$')
		w.WriteString(strconv.Itoa(len(arg)))
		w.WriteString("\r\n")
		w.WriteString(arg)
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// readReply decodes one reply. Simple strings come back as string, integers
// as int64, bulk strings as []byte, arrays as []any and nil replies as nil.
// An error reply is returned as Error in the value position so pipelines can
// keep reading; use replyErr to surface it.
func readReply(r *bufio.Reader) (any, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	switch kind {
	case '+':
		return line, nil
	case '-':
		return Error(line), nil
	case ':':
		return strconv.ParseInt(line, 10, 64)
	case '$':
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return nil, errMalformed
		}
		return buf[:n], nil
	case '*':
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, nil
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = readReply(r); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("redis: unsupported reply type %q", kind)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", errMalformed
	}
	return line[:len(line)-2], nil
}

func replyErr(reply any) error {
	if e, ok := reply.(Error); ok {
		return e
	}
	return nil
}
