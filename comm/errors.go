package comm

import (
	"errors"
	"fmt"

	"github.com/unixpickle/mpcomm/channel"
)

var (
	// ErrClosedChannel is returned when an operation runs
	// into a channel or communicator that has been closed.
	ErrClosedChannel = channel.ErrClosed

	// ErrBufferTooSmall is returned when a receive buffer
	// cannot hold the incoming message.
	// The message stays queued, so the receive can be
	// retried with a bigger buffer.
	ErrBufferTooSmall = errors.New("comm: receive buffer too small")

	// ErrSizeMismatch is returned when a collective is
	// given a sequence whose length is not the size of the
	// communicator.
	ErrSizeMismatch = errors.New("comm: sequence length does not match communicator size")

	// ErrNoDirectLink is returned when the topology does
	// not wire a direct channel between two ranks.
	ErrNoDirectLink = errors.New("comm: no direct link between ranks")

	// ErrInvalidGroup is returned for malformed subgroup
	// rank lists.
	ErrInvalidGroup = errors.New("comm: invalid group")

	// ErrNotAMember is returned by every operation on the
	// invalid communicator handed to ranks left out of a
	// derived group.
	ErrNotAMember = errors.New("comm: rank is not a member of the communicator")

	// ErrRankOutOfRange is returned when a rank argument is
	// not in [0, size).
	ErrRankOutOfRange = errors.New("comm: rank out of range")

	// ErrInvalidTag is returned for negative user tags.
	ErrInvalidTag = errors.New("comm: invalid tag")

	// ErrTypeMismatch is returned when a message does not
	// hold the type the receiver asked for.
	ErrTypeMismatch = errors.New("comm: message type mismatch")

	// ErrCollectiveMismatch is returned when ranks call
	// different collectives, or the same collective with
	// different parameters, and the difference is visible
	// to the receiving rank.
	ErrCollectiveMismatch = errors.New("comm: collective mismatch")
)

// BufferTooSmallError describes a receive that could not
// fit the incoming message.
type BufferTooSmallError struct {
	Need int
	Have int
}

func (b *BufferTooSmallError) Error() string {
	return fmt.Sprintf("comm: receive buffer too small (need %d elements, have %d)",
		b.Need, b.Have)
}

// Is makes errors.Is(err, ErrBufferTooSmall) succeed.
func (b *BufferTooSmallError) Is(target error) bool {
	return target == ErrBufferTooSmall
}

// MismatchError describes two ranks disagreeing about the
// collective they are running.
type MismatchError struct {
	Peer int
	Want string
	Got  string
}

func (m *MismatchError) Error() string {
	return fmt.Sprintf("comm: collective mismatch with rank %d: expected %s but peer sent %s",
		m.Peer, m.Want, m.Got)
}

// Is makes errors.Is(err, ErrCollectiveMismatch) succeed.
func (m *MismatchError) Is(target error) bool {
	return target == ErrCollectiveMismatch
}
