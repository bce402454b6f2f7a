package bitrix

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Int unmarshals Bitrix numeric fields, which arrive inconsistently as
// numbers, numeric strings, false or null depending on the method.
type Int int64

func (i *Int) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "null", "false", `""`:
		*i = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = Int(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("bitrix int: cannot parse %q", string(data))
	}
	*i = Int(f)
	return nil
}

// Text unmarshals Bitrix string fields that may arrive as numbers,
// null or false. Non-string scalars keep their literal representation.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "null", "false":
		*t = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*t = Text(v)
		return nil
	}
	*t = Text(s)
	return nil
}

func (t Text) String() string {
	return string(t)
}

// IntList tolerates UF_DEPARTMENT arriving as an array of numbers,
// an array of numeric strings, or a bare scalar.
type IntList []int64

func (l *IntList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "false" {
		*l = nil
		return nil
	}
	if len(s) > 0 && s[0] == '[' {
		var raw []Int
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make(IntList, 0, len(raw))
		for _, v := range raw {
			out = append(out, int64(v))
		}
		*l = out
		return nil
	}
	var v Int
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	*l = IntList{int64(v)}
	return nil
}

// MultiField is one entry of a CRM multifield (PHONE, EMAIL).
type MultiField struct {
	Value     string `json:"VALUE"`
	ValueType string `json:"VALUE_TYPE"`
}

// Contact is the subset of crm.contact.list fields the portal selects.
type Contact struct {
	ID           Int          `json:"ID"`
	Name         Text         `json:"NAME"`
	LastName     Text         `json:"LAST_NAME"`
	Phone        []MultiField `json:"PHONE"`
	Email        []MultiField `json:"EMAIL"`
	CompanyID    Int          `json:"COMPANY_ID"`
	CompanyTitle Text         `json:"COMPANY_TITLE"`
}

// Company is the subset of crm.company.list fields the portal selects.
type Company struct {
	ID    Int  `json:"ID"`
	Title Text `json:"TITLE"`
}

// User is an employee record from user.get.
type User struct {
	ID           Int     `json:"ID"`
	Name         Text    `json:"NAME"`
	LastName     Text    `json:"LAST_NAME"`
	Email        Text    `json:"EMAIL"`
	WorkPosition Text    `json:"WORK_POSITION"`
	Position     Text    `json:"POSITION"`
	Departments  IntList `json:"UF_DEPARTMENT"`
}

// FullName joins first and last name, trimming when either is empty.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(string(u.Name)) + " " + strings.TrimSpace(string(u.LastName)))
}

// Department is a department.get record. UF_HEAD and PARENT come back
// as strings and may be absent or false.
type Department struct {
	ID     Int  `json:"ID"`
	Name   Text `json:"NAME"`
	Head   Int  `json:"UF_HEAD"`
	Parent Int  `json:"PARENT"`
}

// Address is a crm.address.list record bound to a CRM entity.
type Address struct {
	EntityID Int  `json:"ENTITY_ID"`
	Address1 Text `json:"ADDRESS_1"`
	City     Text `json:"CITY"`
	Region   Text `json:"REGION"`
	Country  Text `json:"COUNTRY"`
}

// Product is a catalog product from crm.product.get / crm.product.list.
type Product struct {
	ID          Int  `json:"ID"`
	Name        Text `json:"NAME"`
	Price       Text `json:"PRICE"`
	CurrencyID  Text `json:"CURRENCY_ID"`
	Description Text `json:"DESCRIPTION"`
}

// ProductImage is one entry of catalog.productImage.list.
type ProductImage struct {
	ID          Int  `json:"id"`
	Name        Text `json:"name"`
	ProductID   Int  `json:"productId"`
	DetailURL   Text `json:"detailUrl"`
	DownloadURL Text `json:"downloadUrl"`
}

// StatusItem is a crm.status.entity.items record (deal stages, types).
type StatusItem struct {
	StatusID Text `json:"STATUS_ID"`
	Name     Text `json:"NAME"`
}

// Currency is a crm.currency.list record.
type Currency struct {
	Currency Text `json:"CURRENCY"`
	FullName Text `json:"FULL_NAME"`
}

// Deal is the subset of crm.deal.list fields the portal selects.
// UF contains any requested user fields keyed by their UF_CRM_* code.
type Deal struct {
	ID          Int             `json:"ID"`
	Title       Text            `json:"TITLE"`
	Opportunity Text            `json:"OPPORTUNITY"`
	CurrencyID  Text            `json:"CURRENCY_ID"`
	StageID     Text            `json:"STAGE_ID"`
	TypeID      Text            `json:"TYPE_ID"`
	BeginDate   Text            `json:"BEGINDATE"`
	CloseDate   Text            `json:"CLOSEDATE"`
	DateCreate  Text            `json:"DATE_CREATE"`
	UF          map[string]Text `json:"-"`
}

// UnmarshalJSON captures UF_CRM_* fields alongside the fixed ones.
func (d *Deal) UnmarshalJSON(data []byte) error {
	type alias Deal
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for code, raw := range all {
		if !strings.HasPrefix(code, "UF_CRM_") {
			continue
		}
		var v Text
		if err := v.UnmarshalJSON(raw); err != nil {
			continue
		}
		if a.UF == nil {
			a.UF = make(map[string]Text)
		}
		a.UF[code] = v
	}

	*d = Deal(a)
	return nil
}

// DecodeEach unmarshals every raw list item into T.
func DecodeEach[T any](items []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
