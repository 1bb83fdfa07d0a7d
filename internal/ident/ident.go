// Package ident generates identifiers and anonymous author labels.
package ident

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

const (
	anonMin = 1000
	anonMax = 9999
)

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.NewString()
}

// NewAnonymousName returns a label such as "Anon #4521". Labels are not unique.
func NewAnonymousName() string {
	return fmt.Sprintf("Anon #%d", anonMin+rand.IntN(anonMax-anonMin+1))
}
