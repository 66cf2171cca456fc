// Package sensor implements measurement models of the fused sensors.
//
// Every sensor implements fusion.Sensor: given a measurement and the current
// state estimate it returns the observation matrix (or its Jacobian), the
// innovation and the measurement noise covariance consumed by the filter update.
package sensor

// stateDim is the length of the [px, py, vx, vy] state vector
const stateDim = 4
