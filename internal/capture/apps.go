package capture

import (
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ListApplications enumerates running processes and groups them by
// executable name. The group name doubles as the application identifier
// used for application-source capture and audio exclusion.
func ListApplications() ([]Application, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Application)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(name, ".exe"))
		app, ok := byName[key]
		if !ok {
			app = &Application{ID: key, Name: strings.TrimSuffix(name, ".exe")}
			byName[key] = app
		}
		app.PIDs = append(app.PIDs, p.Pid)
	}

	apps := make([]Application, 0, len(byName))
	for _, a := range byName {
		apps = append(apps, *a)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps, nil
}

// ExclusionSet collects the process IDs belonging to the named
// application and their direct children. The audio capturer skips
// loopback sessions owned by these so a capture session does not feed
// its companion application's own playback back into the stream.
func ExclusionSet(appID string) (map[int32]struct{}, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	set := make(map[int32]struct{})
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(name, ".exe"))
		if key != strings.ToLower(appID) {
			continue
		}
		set[p.Pid] = struct{}{}
		children, err := p.Children()
		if err != nil {
			continue
		}
		for _, c := range children {
			set[c.Pid] = struct{}{}
		}
	}

	if len(set) == 0 {
		log.Warn("audio exclusion requested but no matching processes found", "app", appID)
	}
	return set, nil
}
