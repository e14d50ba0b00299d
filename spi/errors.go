package spi

import "fmt"

// InvalidWordSizeError indicates a bits-per-word value the target cannot
// provide.
type InvalidWordSizeError struct {
	Bits int
}

func (e *InvalidWordSizeError) Error() string {
	return fmt.Sprintf("invalid word size: %d bits", e.Bits)
}

// InvalidDataLengthError indicates a single write or read step exceeding the
// limits reported by MaxTransferSizes. Steps are never silently truncated or
// split across exchanges.
type InvalidDataLengthError struct {
	Length int
}

func (e *InvalidDataLengthError) Error() string {
	return fmt.Sprintf("invalid data length: %d bytes", e.Length)
}

// MismatchedDataLengthError indicates a Both transfer whose write and read
// buffers differ in length.
type MismatchedDataLengthError struct {
	WriteLength int
	ReadLength  int
}

func (e *MismatchedDataLengthError) Error() string {
	return fmt.Sprintf("mismatched data lengths: write %d bytes, read %d bytes", e.WriteLength, e.ReadLength)
}
