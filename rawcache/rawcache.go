// Package rawcache archives raw registry responses of a run in a LevelDB
// database, keyed by query token.
package rawcache

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const bodyPrefix = "body:"

var ErrNotFound = errors.New("raw response not found")

// Archive stores response bodies. It is safe for concurrent use.
type Archive struct {
	db *leveldb.DB
}

// Open opens or creates an archive in dir.
func Open(dir string) (*Archive, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw archive: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Put stores the body returned for token, replacing any earlier body.
func (a *Archive) Put(token, body string) error {
	if err := a.db.Put([]byte(bodyPrefix+token), []byte(body), nil); err != nil {
		return fmt.Errorf("failed to store raw response for %q: %w", token, err)
	}
	return nil
}

// Get returns the stored body for token.
func (a *Archive) Get(token string) (string, error) {
	data, err := a.db.Get([]byte(bodyPrefix+token), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read raw response for %q: %w", token, err)
	}
	return string(data), nil
}

// Tokens returns every archived token in key order.
func (a *Archive) Tokens() ([]string, error) {
	iter := a.db.NewIterator(util.BytesPrefix([]byte(bodyPrefix)), nil)
	defer iter.Release()

	var tokens []string
	for iter.Next() {
		tokens = append(tokens, string(iter.Key()[len(bodyPrefix):]))
	}
	return tokens, iter.Error()
}

// Len returns the number of archived responses.
func (a *Archive) Len() (int, error) {
	tokens, err := a.Tokens()
	return len(tokens), err
}
