package lsp

import "io"

// stdioStream joins a process's stdout and stdin into the single
// read/write stream the JSON-RPC connection expects.
type stdioStream struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

// NewStdioStream returns a ReadWriteCloser reading from r and writing to w.
func NewStdioStream(r io.ReadCloser, w io.WriteCloser) io.ReadWriteCloser {
	return &stdioStream{reader: r, writer: w}
}

func (s *stdioStream) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioStream) Write(p []byte) (int, error) { return s.writer.Write(p) }

func (s *stdioStream) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}
