package ports

import (
	"context"

	"github.com/alejandrodnm/surebet/internal/domain"
)

// BetStore persiste los surebets con sus dos patas.
type BetStore interface {
	// CreateSet inserta el set y sus dos patas en una sola transacción.
	CreateSet(ctx context.Context, set domain.BetSet) error

	// GetSet devuelve el set con sus patas. domain.ErrNotFound si no existe.
	GetSet(ctx context.Context, id string) (domain.BetSet, error)

	// ListSets devuelve los sets que cumplen el filtro, ordenados por fecha de
	// evento descendente. Los registros ilegibles no abortan el listado: se
	// devuelven como faults.
	ListSets(ctx context.Context, f domain.SetFilter) ([]domain.BetSet, []domain.RecordFault, error)

	// UpdateSet lee el set, aplica fn y escribe set + patas en la misma
	// transacción. Si fn devuelve error no se escribe nada.
	UpdateSet(ctx context.Context, id string, fn func(*domain.BetSet) error) (domain.BetSet, error)

	// DeleteSet borra el set y sus patas.
	DeleteSet(ctx context.Context, id string) error

	Ping(ctx context.Context) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
