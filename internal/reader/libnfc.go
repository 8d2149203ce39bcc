//go:build libnfc

package reader

import "github.com/barnettlynn/mfctools/pkg/libnfc"

func openLibNFC(connstring string) (*Reader, error) {
	p, err := libnfc.Open(connstring)
	if err != nil {
		return nil, err
	}
	name := connstring
	if name == "" {
		name = "libnfc default device"
	}
	return &Reader{Link: p, Name: name, close: p.Close}, nil
}
