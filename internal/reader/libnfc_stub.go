//go:build !libnfc

package reader

import "errors"

func openLibNFC(string) (*Reader, error) {
	return nil, errors.New("libnfc driver not built in: rebuild with -tags libnfc")
}
