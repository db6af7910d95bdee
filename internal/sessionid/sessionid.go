// Package sessionid generates memorable session IDs such as
// "kitten-waffle-stardust-happy".
package sessionid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Words is the number of words in a generated ID.
const Words = 4

var lists = [][]string{animals, dishes, names, randomWords, adjectives, extras}

// New returns a random ID built from one word of each of Words distinct lists.
func New() (string, error) {
	order, err := perm(len(lists))
	if err != nil {
		return "", err
	}

	parts := make([]string, Words)
	for i := range parts {
		list := lists[order[i]]
		n, err := randomIndex(len(list))
		if err != nil {
			return "", err
		}
		parts[i] = list[n]
	}
	return strings.Join(parts, "-"), nil
}

// NewUnique calls New until taken reports the ID as free.
func NewUnique(taken func(string) bool) (string, error) {
	for {
		id, err := New()
		if err != nil {
			return "", err
		}
		if !taken(id) {
			return id, nil
		}
	}
}

// perm is a Fisher-Yates shuffle of 0..n-1 using crypto/rand.
func perm(n int) ([]int, error) {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return nil, err
		}
		p[i], p[j] = p[j], p[i]
	}
	return p, nil
}

func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random index: %w", err)
	}
	return int(n.Int64()), nil
}
