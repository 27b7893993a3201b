package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tradematch/internal/db"
)

// Eval runs a Lua script via EVALSHA, falling back to EVAL on NOSCRIPT.
// Compiled scripts are cached per source for the lifetime of the store.
func (s *Store) Eval(ctx context.Context, script db.Script, keys, args []string) ([]string, error) {
	lua := s.lua(script.Source)

	res, err := lua.Exec(ctx, s.client, keys, args).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpEval, Err: fmt.Errorf("%s: %w", script.Name, err)}
	}

	out := make([]string, len(res))
	for i, msg := range res {
		v, err := msg.ToString()
		if err != nil {
			return nil, &db.Error{Op: db.OpEval, Err: fmt.Errorf("%s reply [%d]: %w", script.Name, i, err)}
		}
		out[i] = v
	}
	return out, nil
}

func (s *Store) lua(source string) *rueidis.Lua {
	if v, ok := s.scripts.Load(source); ok {
		return v.(*rueidis.Lua)
	}
	v, _ := s.scripts.LoadOrStore(source, rueidis.NewLuaScript(source))
	return v.(*rueidis.Lua)
}
