package ports

import (
	"context"

	"github.com/alejandrodnm/surebet/internal/domain"
)

// SetCache guarda la última vista conocida de cada set. Es best-effort: los
// fallos se registran en el adapter y nunca llegan al caller.
//
// Put ignora el set si la entrada guardada tiene una Version mayor; con la
// misma versión la reemplaza. Así un Put tardío de una escritura ya superada
// no deja la cache atrás del store.
type SetCache interface {
	Get(ctx context.Context, id string) (domain.BetSet, bool)
	Put(ctx context.Context, set domain.BetSet)
	Invalidate(ctx context.Context, id string)
}
