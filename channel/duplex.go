package channel

// A DuplexEnd is one side of a pair of Channels running in
// opposite directions.
type DuplexEnd struct {
	Out *SendEnd
	In  *RecvEnd
}

// NewDuplex creates two Channels and bundles their ends so
// that whatever a sends, b receives, and vice versa.
func NewDuplex(opts ...Option) (a, b *DuplexEnd) {
	aSend, bRecv := New(opts...).Ends()
	bSend, aRecv := New(opts...).Ends()
	return &DuplexEnd{Out: aSend, In: aRecv}, &DuplexEnd{Out: bSend, In: bRecv}
}

// Send sends a message to the other side.
func (d *DuplexEnd) Send(msg Message) error {
	return d.Out.Send(msg)
}

// Recv receives a message from the other side.
func (d *DuplexEnd) Recv(tag int) (Message, error) {
	return d.In.Recv(tag)
}

// Close closes both directions.
func (d *DuplexEnd) Close() {
	d.Out.Close()
	d.In.Close()
}
