package application

import "time"

// slidingWindow é a sequência de timestamps de aceite, aparada preguiçosamente
// a cada checagem. Não é segura para uso concorrente: o mutex do Governor é
// quem serializa o acesso.
type slidingWindow struct {
	span   time.Duration
	stamps []time.Time
}

// trim descarta os timestamps fora da janela.
func (w *slidingWindow) trim(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (w *slidingWindow) count() int { return len(w.stamps) }

// note registra um aceite. Só deve ser chamado para requests admitidas:
// rejeição não consome janela.
func (w *slidingWindow) note(now time.Time) {
	w.stamps = append(w.stamps, now)
}
