// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase can log through a small, stable API
// (Logger + Field helpers) while sink and level configuration stay swappable
// at runtime via Service.Apply.
package logx
