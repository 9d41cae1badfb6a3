package appointment

// DeriveViews partitions appts into the ongoing, upcoming and past buckets
// as of today. Cancelled appointments appear in none of them. The input is
// not modified.
func DeriveViews(appts []Appointment, today Date) Views {
	v := Views{
		Ongoing:  []Appointment{},
		Upcoming: []Appointment{},
		Past:     []Appointment{},
	}
	for _, a := range appts {
		switch a.Status {
		case StatusOngoing:
			v.Ongoing = append(v.Ongoing, a)
		case StatusUpcoming:
			if a.Date.Equal(today) {
				v.Ongoing = append(v.Ongoing, a)
			} else if a.Date.After(today) {
				v.Upcoming = append(v.Upcoming, a)
			}
		case StatusCompleted:
			v.Past = append(v.Past, a)
		}
	}
	return v
}

// effectiveStatus treats an upcoming appointment whose day has arrived as
// ongoing.
func effectiveStatus(a Appointment, today Date) Status {
	if a.Status == StatusUpcoming && a.Date.Equal(today) {
		return StatusOngoing
	}
	return a.Status
}
