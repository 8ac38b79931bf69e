package errors

import (
	goerrs "errors"
	"fmt"
)

type MalformedMessage struct {
	MessageName string
	Size        int
	Err         error
}

func (e *MalformedMessage) Error() string {
	return fmt.Sprintf("Malformed %s message (%d bytes): %v", e.MessageName, e.Size, e.Err)
}

func (e *MalformedMessage) Unwrap() error {
	return e.Err
}

type UnexpectedMessageType struct {
	MessageType int
}

func (e *UnexpectedMessageType) Error() string {
	return fmt.Sprintf("Unexpected websocket message type %d", e.MessageType)
}

type PollStatus struct {
	Url        string
	StatusCode int
}

func (e *PollStatus) Error() string {
	return fmt.Sprintf("Poll of %s returned non-success status %d", e.Url, e.StatusCode)
}

type ResponseTooLarge struct {
	Url   string
	Limit int64
}

func (e *ResponseTooLarge) Error() string {
	return fmt.Sprintf("Response from %s exceeds %d bytes", e.Url, e.Limit)
}

type InvalidTimestamp struct {
	Value string
}

func (e *InvalidTimestamp) Error() string {
	return fmt.Sprintf("Invalid timestamp '%s'", e.Value)
}

type ImageDecode struct {
	Size int
	Err  error
}

func (e *ImageDecode) Error() string {
	return fmt.Sprintf("Could not decode image payload (%d bytes): %v", e.Size, e.Err)
}

func (e *ImageDecode) Unwrap() error {
	return e.Err
}

type MissingFieldError struct {
	MessageName string
	FieldName   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %s in message type %s", e.FieldName, e.MessageName)
}

// Category tells the caller how a failure degrades the display. None of them is fatal.
type Category int

const (
	CategoryTransport Category = iota
	CategoryMalformed
	CategoryPoll
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryTransport:
		return "transport"
	case CategoryMalformed:
		return "malformed"
	case CategoryPoll:
		return "poll"
	case CategoryProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

type CategorizedError struct {
	Err      error
	Category Category
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func Categorize(err error, category Category) error {
	if err == nil {
		return nil
	}
	var ce *CategorizedError
	if goerrs.As(err, &ce) {
		return err
	}
	return &CategorizedError{Err: err, Category: category}
}

// CategoryOf returns the category attached to err, or CategoryTransport for
// anything that was never categorized.
func CategoryOf(err error) Category {
	var ce *CategorizedError
	if goerrs.As(err, &ce) {
		return ce.Category
	}
	return CategoryTransport
}

func IsMalformed(err error) bool {
	return err != nil && CategoryOf(err) == CategoryMalformed
}
