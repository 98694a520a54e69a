package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAzureStore(t *testing.T) {
	loc, err := ParseRoot("az://container/lake")
	require.NoError(t, err)

	tests := []struct {
		name    string
		loc     Location
		opts    Options
		wantErr string
	}{
		{
			name: "connection_string",
			loc:  loc,
			opts: Options{AzureConnectionString: "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=c2VjcmV0;EndpointSuffix=core.windows.net"},
		},
		{name: "shared_key", loc: loc, opts: Options{AzureAccountName: "acct", AzureAccountKey: "c2VjcmV0"}},
		{name: "anonymous", loc: loc, opts: Options{AzureAccountName: "acct"}},
		{name: "no_account", loc: loc, wantErr: "azure account name is required"},
		{name: "wrong_scheme", loc: Location{Scheme: SchemeS3, Bucket: "b"}, wantErr: "expected azure location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewAzureStore(tt.loc, tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "az://container/lake/bronze_data/", store.URI("bronze_data/"))
		})
	}
}

const listBlobsResponse = `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="http://localhost/" ContainerName="container">
  <Prefix>lake/bronze_data/main/films/</Prefix>
  <Blobs>
    <Blob>
      <Name>lake/bronze_data/main/films/ducklake-0001.parquet</Name>
      <Properties>
        <Last-Modified>Sat, 09 Mar 2024 07:05:03 GMT</Last-Modified>
        <Content-Length>4</Content-Length>
      </Properties>
    </Blob>
    <Blob>
      <Name>lake/bronze_data/main/films/_manifest/manifest.json</Name>
    </Blob>
  </Blobs>
  <NextMarker />
</EnumerationResults>`

func TestAzureStore_List(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listBlobsResponse))
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	require.NoError(t, err)
	loc, err := ParseRoot("az://container/lake")
	require.NoError(t, err)
	store := &AzureStore{client: client, loc: loc}

	objs, err := store.List(context.Background(), "bronze_data/main/films/", 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	assert.Equal(t, "bronze_data/main/films/ducklake-0001.parquet", objs[0].Key)
	assert.Equal(t, int64(4), objs[0].Size)
	assert.True(t, objs[0].LastModified.Equal(time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)))

	assert.Equal(t, "bronze_data/main/films/_manifest/manifest.json", objs[1].Key)
	assert.Zero(t, objs[1].Size, "blobs without properties list with zero size")
	assert.Contains(t, gotQuery, "comp=list")

	one, err := store.List(context.Background(), "bronze_data/main/films/", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
	assert.Contains(t, gotQuery, "maxresults=1")
}
