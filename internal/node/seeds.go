package node

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// SeedPeer is one bootstrap address read from a seed file.
type SeedPeer struct {
	Host string
	Port int
}

type seedFile struct {
	Peers []seedPeerBlock `hcl:"peer,block"`
}

type seedPeerBlock struct {
	Host string `hcl:"host"`
	Port int    `hcl:"port"`
}

// LoadSeeds reads an optional HCL file naming bootstrap peers:
//
//	peer {
//	  host = "10.0.0.2"
//	  port = 9999
//	}
//
// An empty path or a missing file is not an error: seed files only
// matter for the very first node in a cluster, and discovery takes over
// from there.
func LoadSeeds(path string) ([]SeedPeer, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat seed file: %w", err)
	}

	var parsed seedFile
	if err := hclsimple.DecodeFile(path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}

	out := make([]SeedPeer, 0, len(parsed.Peers))
	for _, p := range parsed.Peers {
		out = append(out, SeedPeer{Host: p.Host, Port: p.Port})
	}
	return out, nil
}
