package kalman

import (
	fusion "github.com/milosgajdos/go-fusion"
	"gonum.org/v1/gonum/mat"
)

// Filter is a Kalman filter whose corrections are computed by sensor models
type Filter interface {
	// Init initializes filter state and covariance
	Init(fusion.InitCond) error
	// Initialized returns true once the filter has been initialized
	Initialized() bool
	// SetTransition sets state transition matrix and process noise covariance
	SetTransition(mat.Matrix, mat.Symmetric) error
	// Predict propagates filter state to the next step
	Predict() (fusion.Estimate, error)
	// Update corrects filter state using sensor correction
	Update(*fusion.Correction) (fusion.Estimate, error)
	// Estimate returns current filter estimate
	Estimate() (fusion.Estimate, error)
	// State returns current filter state
	State() mat.Vector
	// Reset returns filter into uninitialized state
	Reset()
}

// Kalman is Kalman Filter
type Kalman interface {
	// Filter is Kalman filter
	Filter
	// Cov returns Kalman filter state covariance
	Cov() mat.Symmetric
	// Gain returns Kalman filter gain
	Gain() mat.Matrix
}
