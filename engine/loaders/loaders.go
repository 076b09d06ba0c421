// Package loaders picks the engine backend named in the configuration.
package loaders

import (
	"fmt"
	"os"

	"github.com/domino14/tetron/config"
	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/engine/luaengine"
	"github.com/domino14/tetron/engine/randomengine"
	"github.com/domino14/tetron/engine/scripted"
)

// FromConfig returns the loader for c.Engine. Scripts are read eagerly so
// that a missing file fails before any dispatcher starts.
func FromConfig(c *config.Config) (engine.Loader, error) {
	switch c.Engine {
	case config.EngineScripted:
		script, err := scripted.LoadScript(c.EngineScript)
		if err != nil {
			return nil, err
		}
		return script.Loader(), nil
	case config.EngineLua:
		if _, err := os.Stat(c.EngineScript); err != nil {
			return nil, err
		}
		return luaengine.Loader(c.EngineScript), nil
	case config.EngineRandom:
		return randomengine.Loader(c.RandomSeed), nil
	}
	return nil, fmt.Errorf("unknown engine %q", c.Engine)
}
