package latereport

// Patch lists the columns of a report that may change after creation.
// EmployeeName, UserID, GroupID and ReportTime never change.
type Patch struct {
	Reason        *string
	Status        *Status
	AdminNotified *bool
}

// ReasonPatch sets the reason of a pending report.
func ReasonPatch(reason string) Patch {
	return Patch{Reason: &reason}
}

// ProcessPatch confirms a report and flags that admins were notified.
func ProcessPatch() Patch {
	status := StatusProcessed
	notified := true
	return Patch{Status: &status, AdminNotified: &notified}
}

// CancelPatch cancels a report.
func CancelPatch() Patch {
	status := StatusCancelled
	return Patch{Status: &status}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Reason == nil && p.Status == nil && p.AdminNotified == nil
}

// Validate rejects status changes that are not forward transitions.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Terminal() {
		return ErrImmutableStatus
	}
	return nil
}

// Processes reports whether applying p confirms the report.
func (p Patch) Processes() bool {
	return p.Status != nil && *p.Status == StatusProcessed
}

// TouchesUserStats reports whether applying p can change any per-user statistic.
func (p Patch) TouchesUserStats() bool {
	return p.Reason != nil || p.Processes()
}
