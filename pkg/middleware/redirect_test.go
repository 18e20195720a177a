package middleware

import "testing"

func TestBuildRefreshRedirect(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "plain path",
			base: "https://auth.example.com",
			path: "/api/v1/profile",
			want: "https://auth.example.com/507f1f77bcf86cd799439011/tokens/refresh?redirectUrl=%2Fapi%2Fv1%2Fprofile",
		},
		{
			name: "trailing slash on base",
			base: "https://auth.example.com/",
			path: "/api/v1/profile",
			want: "https://auth.example.com/507f1f77bcf86cd799439011/tokens/refresh?redirectUrl=%2Fapi%2Fv1%2Fprofile",
		},
		{
			name: "path with query",
			base: "https://auth.example.com",
			path: "/api/v1/profile?tab=tokens&page=2",
			want: "https://auth.example.com/507f1f77bcf86cd799439011/tokens/refresh?redirectUrl=%2Fapi%2Fv1%2Fprofile%3Ftab%3Dtokens%26page%3D2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildRefreshRedirect(tt.base, testID, tt.path)
			if got != tt.want {
				t.Errorf("BuildRefreshRedirect() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}
