package state

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// GetJSON decodes the record under key into v. It reports false when the key is absent.
func GetJSON(tx *Tx, key string, v any) (bool, error) {
	raw, ok := tx.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(tx *Tx, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(key, b)
}

// GetUint reads a decimal counter, defaulting to zero.
func GetUint(tx *Tx, key string) (uint64, error) {
	raw, ok := tx.Get(key)
	if !ok || len(raw) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode counter %s: %w", key, err)
	}
	return n, nil
}

// PutUint stores n as decimal text.
func PutUint(tx *Tx, key string, n uint64) error {
	return tx.Put(key, []byte(strconv.FormatUint(n, 10)))
}

// NextID increments the counter under key and returns the new value, so ids start at 1.
func NextID(tx *Tx, key string) (uint64, error) {
	n, err := GetUint(tx, key)
	if err != nil {
		return 0, err
	}
	n++
	if err := PutUint(tx, key, n); err != nil {
		return 0, err
	}
	return n, nil
}

// SeqKey renders a sequence number so that lexical order matches numeric order.
func SeqKey(seq uint64) string {
	return fmt.Sprintf("%016x", seq)
}

// ParseSeqKey is the inverse of SeqKey.
func ParseSeqKey(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
