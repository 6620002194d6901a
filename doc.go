// Package corejit builds the demo programs of the backend (sum, fibo and
// user_main) into a module for the host machine and drives the three ways of
// consuming it: executing it in process, printing its IR and emitting
// assembly or object files.
package corejit
