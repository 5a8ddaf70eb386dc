package blob

import "testing"

func TestNewMinioStore_InvalidEndpoint(t *testing.T) {
	// The minio client wants host:port; a scheme-qualified URL must be
	// rejected at construction time, before any network call.
	_, err := NewMinioStore(MinioConfig{
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "admin",
		SecretKey: "secretpassword",
		Bucket:    "letters",
	})
	if err == nil {
		t.Fatal("expected error for scheme-qualified endpoint")
	}
}
