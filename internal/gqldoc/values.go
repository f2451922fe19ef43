package gqldoc

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
)

// ArgumentValues converts the arguments of field to Go values. Variables resolve
// through variables; an argument bound to an absent variable is omitted.
func ArgumentValues(field *ast.Field, variables map[string]interface{}) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if field == nil {
		return args, nil
	}
	for _, arg := range field.Arguments {
		if arg == nil || arg.Name == nil {
			continue
		}
		if v, ok := arg.Value.(*ast.Variable); ok && !hasVariable(v, variables) {
			continue
		}
		value, err := valueFromAST(arg.Value, variables)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name.Value, err)
		}
		args[arg.Name.Value] = value
	}
	return args, nil
}

func hasVariable(v *ast.Variable, variables map[string]interface{}) bool {
	if v == nil || v.Name == nil {
		return false
	}
	_, ok := variables[v.Name.Value]
	return ok
}

func valueFromAST(value ast.Value, variables map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case *ast.Variable:
		if v.Name == nil {
			return nil, nil
		}
		return variables[v.Name.Value], nil
	case *ast.IntValue:
		parsed, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", v.Value)
		}
		return int(parsed), nil
	case *ast.FloatValue:
		parsed, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", v.Value)
		}
		return parsed, nil
	case *ast.StringValue:
		return v.Value, nil
	case *ast.BooleanValue:
		return v.Value, nil
	case *ast.EnumValue:
		return v.Value, nil
	case *ast.ListValue:
		items := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			converted, err := valueFromAST(item, variables)
			if err != nil {
				return nil, err
			}
			items = append(items, converted)
		}
		return items, nil
	case *ast.ObjectValue:
		object := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			if field == nil || field.Name == nil {
				continue
			}
			converted, err := valueFromAST(field.Value, variables)
			if err != nil {
				return nil, err
			}
			object[field.Name.Value] = converted
		}
		return object, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %T", value)
	}
}
