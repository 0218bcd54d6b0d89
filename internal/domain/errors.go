package domain

import "errors"

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEmptyCollection    = errors.New("collection is empty")
	ErrRetrieval          = errors.New("retrieval failed")
	ErrIndexCorrupt       = errors.New("lexical index corrupt")
	ErrConfiguration      = errors.New("invalid configuration")
	ErrNotInitialized     = errors.New("query engine not initialized")
	ErrBlobNotFound       = errors.New("blob not found")
)
