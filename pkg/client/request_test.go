package client

import (
	"errors"
	"net/http"
	"testing"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

func TestCreateSessionRequestDefaults(t *testing.T) {
	r := NewCreateSessionRequest("Employment Agreement", "/pkgs/emp.pkg")

	if r.Operation() != OpCreateSession {
		t.Errorf("Operation() = %q", r.Operation())
	}
	if r.Method() != http.MethodPost {
		t.Errorf("Method() = %q", r.Method())
	}
	if r.PathPrefix() != api.PathNewSession {
		t.Errorf("PathPrefix() = %q", r.PathPrefix())
	}
	if r.PackageFilePath() != "/pkgs/emp.pkg" {
		t.Errorf("PackageFilePath() = %q", r.PackageFilePath())
	}
	if r.Content() != nil {
		t.Errorf("Content() = %q, want nil", r.Content())
	}

	q, err := r.Query()
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	want := "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=True"
	if q != want {
		t.Errorf("Query() = %q, want %q", q, want)
	}
}

func TestCreateSessionRequestQuery(t *testing.T) {
	tests := []struct {
		name     string
		opts     []SessionOption
		settings [][2]string
		want     string
	}{
		{
			name: "download links off",
			opts: []SessionOption{WithShowDownloadLinks(false)},
			want: "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=False",
		},
		{
			name: "billing ref and theme",
			opts: []SessionOption{WithBillingRef("hr dept"), WithTheme("dark")},
			want: "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=True&billingref=hr%20dept&theme=dark",
		},
		{
			name: "custom formats",
			opts: []SessionOption{WithInterviewFormat("Silverlight"), WithOutputFormat("PDF")},
			want: "interviewformat=Silverlight&outputformat=PDF&showdownloadlinks=True",
		},
		{
			name:     "settings in insertion order",
			settings: [][2]string{{"Zeta", "1"}, {"Alpha", "2"}},
			want:     "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=True&Zeta=1&Alpha=2",
		},
		{
			name:     "settings are escaped",
			settings: [][2]string{{"Due Date", "a&b=c"}},
			want:     "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=True&Due%20Date=a%26b%3Dc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCreateSessionRequest("pkg", "", tt.opts...)
			for _, kv := range tt.settings {
				if err := r.SetSetting(kv[0], kv[1]); err != nil {
					t.Fatalf("SetSetting() error: %v", err)
				}
			}
			got, err := r.Query()
			if err != nil {
				t.Fatalf("Query() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Query() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateSessionRequestHMACParams(t *testing.T) {
	r := NewCreateSessionRequest("pkg", "", WithBillingRef("ref"), WithTheme("ignored"))
	_ = r.SetSetting("b", "1")
	_ = r.SetSetting("a", "2")

	params := r.HMACParams()
	if len(params) != 5 {
		t.Fatalf("expected 5 params, got %d", len(params))
	}
	for i, want := range []string{"pkg", "ref", "JavaScript", "Native"} {
		if params[i] != want {
			t.Errorf("params[%d] = %v, want %q", i, params[i], want)
		}
	}
	if got := canonicalValue(params[4]); got != "b=1\na=2" {
		t.Errorf("settings param = %q", got)
	}
}

func TestSetSettingReplacesInPlace(t *testing.T) {
	r := NewCreateSessionRequest("pkg", "")
	_ = r.SetSetting("a", "1")
	_ = r.SetSetting("b", "2")
	_ = r.SetSetting("a", "3")

	q, _ := r.Query()
	want := "interviewformat=JavaScript&outputformat=Native&showdownloadlinks=True&a=3&b=2"
	if q != want {
		t.Errorf("Query() = %q, want %q", q, want)
	}
}

func TestSettingsReturnsCopy(t *testing.T) {
	r := NewCreateSessionRequest("pkg", "")
	_ = r.SetSetting("a", "1")

	s := r.Settings()
	s.Set("b", "2")

	if r.Settings().Len() != 1 {
		t.Error("modifying the returned settings changed the request")
	}
}

func TestSetSettingAfterSeal(t *testing.T) {
	r := NewCreateSessionRequest("pkg", "")
	r.seal()

	if err := r.SetSetting("a", "1"); !errors.Is(err, ErrRequestSealed) {
		t.Errorf("expected ErrRequestSealed, got %v", err)
	}
}

func TestSetSettingRejectsReservedNames(t *testing.T) {
	tests := []string{"outputformat", "OutputFormat", "INTERVIEWFORMAT", "showdownloadlinks", "billingref", "theme", "Theme"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewCreateSessionRequest("pkg", "", WithTheme("dark"))
			before, _ := r.Query()

			if err := r.SetSetting(name, "x"); !errors.Is(err, ErrReservedSetting) {
				t.Fatalf("expected ErrReservedSetting, got %v", err)
			}
			after, _ := r.Query()
			if after != before {
				t.Errorf("Query() changed to %q", after)
			}
			if r.Settings().Len() != 0 {
				t.Error("reserved setting was stored")
			}
		})
	}

	r := NewCreateSessionRequest("pkg", "")
	if err := r.SetSetting("themes", "x"); err != nil {
		t.Errorf("unexpected error for non-reserved name: %v", err)
	}
}

func TestHMACParamsSettingsAreCopy(t *testing.T) {
	r := NewCreateSessionRequest("pkg", "")
	_ = r.SetSetting("a", "1")
	r.seal()

	before, _ := r.Query()
	r.HMACParams()[4].(*Settings).Set("b", "2")

	if after, _ := r.Query(); after != before {
		t.Errorf("Query() = %q, want %q", after, before)
	}
	if got := canonicalValue(r.HMACParams()[4]); got != "a=1" {
		t.Errorf("settings param = %q, want %q", got, "a=1")
	}
}

func TestResumeSessionRequest(t *testing.T) {
	snapshot := []byte("snapshot-data")
	r := NewResumeSessionRequest(snapshot)

	if r.Operation() != OpResumeSession || r.Method() != http.MethodPost {
		t.Errorf("unexpected operation %s %s", r.Method(), r.Operation())
	}
	if r.PathPrefix() != api.PathResumeSession {
		t.Errorf("PathPrefix() = %q", r.PathPrefix())
	}
	if r.PackageID() != "" || r.PackageFilePath() != "" || r.BillingRef() != "" {
		t.Error("resume session has no package or billing ref")
	}
	if q, _ := r.Query(); q != "" {
		t.Errorf("Query() = %q, want empty", q)
	}
	params := r.HMACParams()
	if len(params) != 1 || string(params[0].([]byte)) != "snapshot-data" {
		t.Errorf("HMACParams() = %v", params)
	}
}

func TestUploadPackageRequest(t *testing.T) {
	r := NewUploadPackageRequest("pkg", []byte("zip"))

	if r.Operation() != OpUploadPackage || r.Method() != http.MethodPut {
		t.Errorf("unexpected operation %s %s", r.Method(), r.Operation())
	}
	if r.PathPrefix() != api.PathPackageCache {
		t.Errorf("PathPrefix() = %q", r.PathPrefix())
	}
	if string(r.Content()) != "zip" {
		t.Errorf("Content() = %q", r.Content())
	}
	if q, _ := r.Query(); q != "" {
		t.Errorf("Query() = %q, want empty", q)
	}

	params := r.HMACParams()
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %d", len(params))
	}
	if params[0] != "pkg" || params[1] != nil || params[2] != true || params[3] != "" {
		t.Errorf("HMACParams() = %v", params)
	}
}
