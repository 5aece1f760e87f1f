package connectivity

import "testing"

func TestSetOnlineNotifiesSynchronously(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{InitiallyOnline: false})

	var observed []bool
	unsubscribe := monitor.Subscribe(func(online bool) {
		observed = append(observed, online)
	})
	defer unsubscribe()

	monitor.SetOnline(true)

	if len(observed) != 1 || observed[0] != true {
		t.Fatalf("expected one synchronous online notification, got %v", observed)
	}
	if !monitor.IsOnline() {
		t.Fatalf("expected monitor to report online")
	}
}

func TestSetOnlineDeduplicatesRepeatedState(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{InitiallyOnline: false})

	notifications := 0
	unsubscribe := monitor.Subscribe(func(bool) { notifications++ })
	defer unsubscribe()

	monitor.SetOnline(true)
	monitor.SetOnline(true)
	monitor.SetOnline(false)
	monitor.SetOnline(false)

	if notifications != 2 {
		t.Fatalf("expected 2 transition notifications, got %d", notifications)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{InitiallyOnline: true})

	notifications := 0
	unsubscribe := monitor.Subscribe(func(bool) { notifications++ })

	monitor.SetOnline(false)
	unsubscribe()
	monitor.SetOnline(true)

	if notifications != 1 {
		t.Fatalf("expected notifications to stop after unsubscribe, got %d", notifications)
	}
}

func TestNilCallbackIsIgnored(t *testing.T) {
	monitor := NewMonitor(MonitorConfig{})

	unsubscribe := monitor.Subscribe(nil)
	unsubscribe()

	monitor.SetOnline(true)
	if !monitor.IsOnline() {
		t.Fatalf("expected monitor to report online")
	}
}
