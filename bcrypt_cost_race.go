//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds hash with the default cost so the suites stay within timeouts.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
