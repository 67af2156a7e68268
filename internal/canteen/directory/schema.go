package directory

import "github.com/hashicorp/go-memdb"

const (
	tableEmployees = "employees"
	tableTenants   = "tenants"
	tableDevices   = "devices"
	indexID        = "id"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEmployees: {
				Name: tableEmployees,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "CardNumber"},
					},
				},
			},
			tableTenants: {
				Name: tableTenants,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "TenantID"},
					},
				},
			},
			tableDevices: {
				Name: tableDevices,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "DeviceCode"},
					},
				},
			},
		},
	}
}
