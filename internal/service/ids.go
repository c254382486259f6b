package service

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// newCode builds the portal-visible one-time code, e.g. "GP-48213".
func newCode() string {
	return fmt.Sprintf("GP-%05d", rand.Intn(100000))
}
