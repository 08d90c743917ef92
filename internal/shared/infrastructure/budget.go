package infrastructure

import (
	"context"
	"errors"
	"time"

	"demandinsights/internal/shared/domain"
)

// PhaseTimer borne une phase de calcul (balayage k-means, tours de boosting...)
// Les calculs ne sont pas préemptibles: chaque boucle appelle Check entre deux
// unités de travail et s'arrête sur la première erreur.
type PhaseTimer struct {
	ctx     context.Context
	name    string
	ceiling time.Duration
	started time.Time
}

// NewPhase démarre le chronomètre d'une phase; ceiling <= 0 désactive le plafond propre
// à la phase, seule l'échéance du contexte s'applique alors
func NewPhase(ctx context.Context, name string, ceiling time.Duration) *PhaseTimer {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PhaseTimer{
		ctx:     ctx,
		name:    name,
		ceiling: ceiling,
		started: time.Now(),
	}
}

// Name retourne le nom de la phase
func (p *PhaseTimer) Name() string {
	return p.name
}

// Elapsed retourne le temps écoulé depuis le début de la phase
func (p *PhaseTimer) Elapsed() time.Duration {
	return time.Since(p.started)
}

// Check retourne une TimeoutError si la phase ou la requête a dépassé son budget
func (p *PhaseTimer) Check() error {
	if p == nil {
		return nil
	}
	elapsed := time.Since(p.started)
	if p.ceiling > 0 && elapsed > p.ceiling {
		return domain.NewTimeoutError(p.name, p.ceiling, elapsed)
	}
	if err := p.ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			budget := elapsed
			if deadline, ok := p.ctx.Deadline(); ok {
				budget = deadline.Sub(p.started)
			}
			return domain.NewTimeoutError(p.name, budget, elapsed)
		}
		return err
	}
	return nil
}
