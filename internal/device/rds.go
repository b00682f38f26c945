package device

// RDSSnapshot is the decoded station metadata published by the RDS worker.
// It is a plain value; copies never alias the worker's state.
type RDSSnapshot struct {
	Callsign       string
	ProgramService string
	ProgramType    string
	Radiotext      [2]string
	JulianDate     int
	Hour           int
	Minute         int
	LocalHour      int
	LocalMinute    int
}

// IsZero reports whether the snapshot carries no metadata.
func (s RDSSnapshot) IsZero() bool {
	return s == RDSSnapshot{}
}

// StoreRDS replaces the shared snapshot. The lock is held only for the copy.
func (c *Context) StoreRDS(s RDSSnapshot) {
	c.rdsMu.Lock()
	c.rds = s
	c.rdsMu.Unlock()
}

// ResetRDS clears the shared snapshot.
func (c *Context) ResetRDS() {
	c.StoreRDS(RDSSnapshot{})
}

// RDS returns a copy of the shared snapshot and whether the RDS worker is
// running. While it is not running the snapshot is reported empty.
func (c *Context) RDS() (RDSSnapshot, bool) {
	if !c.rdsRunning.Load() {
		return RDSSnapshot{}, false
	}

	c.rdsMu.Lock()
	s := c.rds
	c.rdsMu.Unlock()
	return s, true
}
