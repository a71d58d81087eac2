package console

/*
Status console for the simulator front panel. The idea is to run the
console in a goroutine: collaborators write status lines through a string
channel and the active implementation decides where they end up - the
gocui status view in monitor mode, stdout in batch mode.
*/

// Console is the status sink the system writes to while stepping.
type Console interface {
	WriteConsole(msg string) error
}
