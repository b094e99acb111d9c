package node

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ohler55/ojg/oj"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/protocol"
)

// localInfo mirrors what is stored under internal/local.
type localInfo struct {
	Identity string
	Host     string
	Port     int
	Startup  int64
}

// readLocal returns the current internal/local contents, or ok=false if
// the tree has none yet (first boot).
func readLocal(e *engine.Engine) (info localInfo, ok bool) {
	tree := e.Snapshot()
	internal, isMap := tree[protocol.InternalRoot].(map[string]any)
	if !isMap {
		return localInfo{}, false
	}
	local, isMap := internal["local"].(map[string]any)
	if !isMap {
		return localInfo{}, false
	}

	id, _ := local["identity"].(string)
	host, _ := local["host"].(string)
	portStr, _ := local["port"].(string)
	startupStr, _ := local["startup"].(string)

	port, _ := strconv.Atoi(portStr)
	startup, _ := strconv.ParseInt(startupStr, 10, 64)

	return localInfo{Identity: id, Host: host, Port: port, Startup: startup}, id != ""
}

// ensureIdentity writes a stable identity UUID (reused across restarts
// if already present), the external host/port, and a fresh startup
// timestamp under internal/local, using the engine's own --set operator
// rather than a private write path.
func ensureIdentity(e *engine.Engine, host string, port int) (localInfo, error) {
	existing, ok := readLocal(e)

	identity := ""
	if ok {
		identity = existing.Identity
	}
	if identity == "" {
		identity = uuid.NewString()
	}

	startup := time.Now().Unix()

	payload := map[string]any{
		"identity": identity,
		"host":     host,
		"port":     strconv.Itoa(port),
		"startup":  strconv.FormatInt(startup, 10),
	}
	encoded, err := oj.Marshal(payload)
	if err != nil {
		return localInfo{}, fmt.Errorf("encode local identity: %w", err)
	}

	args := append(protocol.Segments(protocol.LocalRoot), protocol.OpSetLong, string(encoded))
	if _, err := e.Action(args); err != nil {
		return localInfo{}, fmt.Errorf("write local identity: %w", err)
	}

	return localInfo{Identity: identity, Host: host, Port: port, Startup: startup}, nil
}
