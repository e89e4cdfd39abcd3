//go:build !unix

package hiredis

func (t *transport) readNonblock(p []byte) (int, error) {
	return t.readDeadline(p)
}

func (t *transport) writeNonblock(p []byte) (int, error) {
	return t.writeDeadline(p)
}
