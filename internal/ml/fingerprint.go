package ml

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprinter empreinte xxhash d'un jeu de données: deux lots identiques
// (nombre de lignes, bornes de dates, contenu) donnent la même clé de registre
type Fingerprinter struct {
	digest *xxhash.Digest
	buf    [8]byte
}

// NewFingerprinter crée une nouvelle empreinte vide
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{digest: xxhash.New()}
}

// Uint ajoute un entier
func (f *Fingerprinter) Uint(v uint64) *Fingerprinter {
	binary.LittleEndian.PutUint64(f.buf[:], v)
	_, _ = f.digest.Write(f.buf[:])
	return f
}

// Int ajoute un entier signé
func (f *Fingerprinter) Int(v int) *Fingerprinter {
	return f.Uint(uint64(v))
}

// Float ajoute un flottant (représentation binaire exacte)
func (f *Fingerprinter) Float(v float64) *Fingerprinter {
	return f.Uint(math.Float64bits(v))
}

// Floats ajoute un vecteur
func (f *Fingerprinter) Floats(values []float64) *Fingerprinter {
	f.Int(len(values))
	for _, v := range values {
		f.Float(v)
	}
	return f
}

// String ajoute une chaîne préfixée par sa longueur
func (f *Fingerprinter) String(s string) *Fingerprinter {
	f.Int(len(s))
	_, _ = f.digest.WriteString(s)
	return f
}

// Time ajoute un instant (nanosecondes Unix, zéro pour une date absente)
func (f *Fingerprinter) Time(t time.Time) *Fingerprinter {
	if t.IsZero() {
		return f.Uint(0)
	}
	return f.Uint(uint64(t.UnixNano()))
}

// Sum retourne l'empreinte en hexadécimal
func (f *Fingerprinter) Sum() string {
	return fmt.Sprintf("%016x", f.digest.Sum64())
}
