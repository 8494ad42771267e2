package models

// Actor is the pre-validated identity attached to every state-machine
// call. Capabilities are an explicit set; each transition edge declares
// the capability it requires.
type Actor struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func (a Actor) Has(capability string) bool {
	if capability == "" {
		return true
	}
	for _, c := range a.Capabilities {
		if c == capability || c == CapSystem {
			return true
		}
	}
	return false
}

// SystemActor is used by background sweeps.
func SystemActor() Actor {
	return Actor{ID: "system", Capabilities: []string{CapSystem}}
}
