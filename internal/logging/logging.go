package logging

import "go.uber.org/zap"

// New builds a sugared logger. Every call returns a fresh instance so
// isolated clients and tests do not share logger state.
func New(development bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
