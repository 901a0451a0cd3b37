package ports

import (
	"context"

	"github.com/alejandrodnm/surebet/internal/domain"
)

// Reporter presenta el resumen del dashboard al usuario.
type Reporter interface {
	// PrintSummary imprime totales, desglose por casa y por día.
	// En la implementación de consola, imprime tablas formateadas.
	PrintSummary(ctx context.Context, sum domain.Summary) error
}
