package parser

import "fmt"

type Type = string

const Feed Type = "feed"

// ParseError reports a document that could not be parsed
type ParseError struct {
	Type Type
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse failed: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
