package supervisor

// runall.go — un ciclo de cada perfil en paralelo.
//
// Los perfiles no comparten estado mutable, así que -once puede correrlos a la
// vez; dentro de un perfil el engine sigue serializando ciclos y órdenes.

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/tradeassist/internal/application/engine"
)

// RunAll ejecuta un ciclo por perfil registrado con como mucho workers en
// paralelo (workers <= 0 usa runtime.NumCPU()). Devuelve los resultados y
// los errores por perfil; un perfil que falla no cancela a los demás.
func (s *Supervisor) RunAll(ctx context.Context, workers int) (map[string]*engine.CycleResult, map[string]error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*engine.CycleResult)
		errs    = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, id := range s.Profiles() {
		g.Go(func() error {
			res, err := s.RunOnce(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[id] = err
				return nil
			}
			results[id] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
