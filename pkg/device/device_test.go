package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceValidate(t *testing.T) {
	tests := []struct {
		name    string
		device  Device
		want    Device
		wantErr error
	}{
		{
			name:   "mac normalized",
			device: Device{ID: "phone", Type: "MAC", Address: "0:2A:43:4:B:51"},
			want:   Device{ID: "phone", Type: TypeMAC, Address: "00:2a:43:04:0b:51"},
		},
		{
			name:   "ip with port",
			device: Device{ID: "nas", Type: TypeIP, Address: "192.168.1.10:445"},
			want:   Device{ID: "nas", Type: TypeIP, Address: "192.168.1.10:445"},
		},
		{
			name:    "bad mac",
			device:  Device{ID: "x", Type: TypeMAC, Address: "192.168.1.10"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "ip without port",
			device:  Device{ID: "x", Type: TypeIP, Address: "192.168.1.10"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "ip with bad port",
			device:  Device{ID: "x", Type: TypeIP, Address: "192.168.1.10:http"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "unknown type",
			device:  Device{ID: "x", Type: "bluetooth", Address: "aa:bb:cc:dd:ee:ff"},
			wantErr: ErrUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.device
			err := d.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDeviceValidateMissingID(t *testing.T) {
	d := Device{Name: "phone", Type: TypeMAC, Address: "aa:bb:cc:dd:ee:ff"}
	require.Error(t, d.Validate())
}

func TestDeviceString(t *testing.T) {
	assert.Equal(t, "Phone", Device{ID: "phone", Name: "Phone"}.String())
	assert.Equal(t, "phone", Device{ID: "phone"}.String())
}
